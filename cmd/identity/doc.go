// Package identity owns Beacon's users: registration, lookup, and password
// hashing. Live sharing, sessions, and contacts all reference users through
// this package; they never mutate them.
package identity
