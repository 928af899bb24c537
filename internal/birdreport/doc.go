// Package birdreport talks to the birdreport.cn sighting endpoint.
//
// Requests carry a canonical JSON parameter set that is signed (MD5 over
// params, request id and timestamp), encrypted with the service's RSA public
// key in PKCS#1 v1.5 blocks, and posted as base64. Responses return an
// AES-CBC encrypted JSON array of species rows in their "data" field.
//
// The package also decodes the base64 "search" parameter of website result
// URLs into payloads and parses saved result pages as an offline fallback.
// Clients keep no state between calls, so Fetch is safe for concurrent use.
package birdreport
