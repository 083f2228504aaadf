// Package youtube implements the YouTube provider on top of the YouTube
// Data API v3 client.
//
// Authorization uses Google's OAuth 2.0 endpoint with offline access and a
// forced consent prompt so that every authorization returns a refresh token.
// The connected account is the authenticated user's own channel; accounts
// without a channel are refused.
package youtube
