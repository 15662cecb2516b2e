// Package trust tracks remote device identities and their verification
// state, and decides which devices may receive room keys.
package trust
