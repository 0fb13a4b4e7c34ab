// Package lda implements a connector for the Senate Lobbying Disclosure
// Act API.
//
// The connector fetches lobbying filings, partitioned by filing year.
//
// # Authentication
//
// Registered users send their key as an Authorization: Token header, which
// raises the documented request budget from 15 to 120 requests per minute.
// The key is read from the config file or the LEGISYNC_LDA_API_KEY
// environment variable. Without a key the connector runs anonymously; the
// configured rate limit should then be lowered to match.
//
// # Pagination
//
// The API serves numbered pages in Django REST Framework style: each
// response carries count, next, previous, and results. The connector keeps
// the page number in its cursor and treats a null next as the end of the
// chain.
//
// # Incremental Fetches
//
// Filing listings accept a dt_posted_after filter; incremental runs pass
// the partition's last successful walk time so old filings are not
// re-listed.
//
// # Stable Identifiers
//
// Filings are identified by their filing_uuid. Results without one are
// skipped and counted; the rest of the page is still used.
package lda
