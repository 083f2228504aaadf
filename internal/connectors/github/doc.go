// Package github implements the GitHub provider.
//
// Accounts connect through a GitHub OAuth App using the authorization code
// grant with PKCE. The authenticated user becomes the connection: its numeric
// id is the provider-side account id and its login the username.
//
// # Methods
//
//   - repositories: lists repositories the user can access (owned,
//     collaborator and organisation member), most recently updated first.
//   - createIssue: opens an issue in a repository.
//
// # Tokens
//
// Classic OAuth App tokens do not expire and carry no refresh token. Apps
// that opt into expiring user tokens receive an eight hour access token and
// a refresh token, which RefreshToken exchanges through the token endpoint.
//
// # Rate Limiting
//
// Calls go through the github bucket of the httpx limiter (about 1.2
// requests per second) and are held back when the quota go-github reads from
// the response headers falls below [QuotaReserve] before its reset time.
// Secondary rate limits pause the bucket for the advertised retry delay.
//
// The limiter is shared by every provider instance in the process.
//
// # Error Handling
//
// A 401 response is reported as [domain.ErrTokenExpired] so the invocation
// engine can refresh and retry. Rate limit responses surface as
// [RateLimitError].
package github
