// Package congress implements a connector for the Congress.gov v3 API.
//
// The connector fetches bills, House roll-call votes, and member records.
// Bills and votes are partitioned by congress number; members form a single
// partition covering the full member list.
//
// # Architecture
//
// The connector follows the driven port pattern defined in [driven.Connector].
// It comprises the following components:
//
//   - Connector: enumerates partitions and executes fetch tasks
//   - Client: builds URLs and performs authenticated JSON requests
//   - Cursor: tracks the offset position within a partition's listing
//
// # Authentication
//
// Requests carry an API key in the X-Api-Key header. Keys are free and
// issued at api.congress.gov/sign-up. The key is read from the config file
// or the LEGISYNC_CONGRESS_API_KEY environment variable.
//
// # Pagination
//
// Listings page by offset and limit. A response's pagination block carries
// the total count and, while more pages remain, a next URL; the connector
// advances its own offset cursor rather than following the URL so a cursor
// stays valid across runs.
//
// # Incremental Fetches
//
// Bill and member listings accept a fromDateTime filter; incremental runs
// pass the partition's last successful walk time so unchanged entities are
// not re-listed. Votes have no update filter and are always listed in full.
//
// # Stable Identifiers
//
//   - Bills: {congress}_{type}_{number}, e.g. 119_hr_1234
//   - Votes: {congress}_house_{session}_{roll}, e.g. 119_house_1_17
//   - Members: the bioguide ID, e.g. A000360
//
// Items missing the fields their identifier needs are skipped and counted;
// the rest of the page is still used.
package congress
