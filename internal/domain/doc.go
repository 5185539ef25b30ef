// Package domain contains the core concepts of proxy-sheet printing: card
// identities, print requests, sheet layout and the error kinds a job can fail
// with. Keep this package free of transport (HTTP) and infrastructure
// (network, image codecs, PDF) concerns.
package domain
