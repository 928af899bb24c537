// Package cloudinary uploads audio files to Cloudinary through the official
// Go SDK.
//
// Audio is stored under the "video" resource type, in the folder
// <prefix>/<slug>/sounds with the file stem as public id and overwrite
// enabled, so repeated uploads of the same clip are idempotent.
package cloudinary
