// Package commands defines the roomcrypt CLI for managing the local device's
// keys and room encryption state.
//
// Commands
//
//   - init                 Create the local identity and a first prekey batch
//   - fingerprint          Print the identity fingerprint
//   - prekeys generate     Generate one-time prekeys
//   - prekeys list         Print unpublished prekeys as JSON
//   - prekeys publish      Print unpublished prekeys and mark them published
//   - prekeys fallback     Rotate the fallback prekey
//   - trust get|set        Read or change a device's trust state
//   - devices              List the tracked devices of a user
//   - room enable          Turn on encryption for a room
//   - room rotate          Retire a room's outbound session
//   - room status          Print a room's encryption state
//
// # Implementation
//
// The root command loads the configuration and opens the store before any
// subcommand runs, so handlers share one facade and release the store when
// they finish.
package commands
