package common

// AuthorizationHeaderName carries the bearer token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// TempIDPrefix marks client-generated identifiers for entities created
// before the server has assigned an authoritative id.
const TempIDPrefix = "temp_"
