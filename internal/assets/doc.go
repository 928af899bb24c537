// Package assets inspects and updates the two stores the convergence loop
// drives toward consistency: the local image tree and the cloud metadata
// documents.
//
// Local images live under <images>/<slug>/<source>/ for each image Source.
// Cloud metadata is one JSON document per slug,
// <cloud>/<slug>_cloudinary_urls.json, holding bird_info, one photo array per
// Source and an optional sounds array. Unknown keys are preserved on rewrite.
// State is a derived view over both stores and is always recomputed.
package assets
