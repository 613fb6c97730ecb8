// Package views maintains the view-definitions artifact: a YAML document
// listing the Google Ads reporting views and the GAQL fields each exposes.
//
// The artifact is regenerated from the googleAdsFields service by the
// background bootstrap and by the `views refresh` command. A failed
// refresh never clobbers an existing file.
package views
