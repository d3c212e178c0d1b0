// Package campaign implements administration of automation campaigns.
//
// The service layer validates campaign definitions, keeps step numbering
// dense, toggles campaigns on and off, and exposes the delivery records a
// campaign has produced (listing and cancellation). It depends on
// repository interfaces defined in this package and never on HTTP types.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
