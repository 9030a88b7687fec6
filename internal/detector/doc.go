// Package detector turns raw per-frame plate detections and per-crop OCR
// output into one consolidated plate string per track.
//
// The stages are: score filtering and arrival-order non-maximum suppression
// (Deduplicate), main-line text extraction (ExtractMainLine) with character
// correction (FixPlate), and per-track vote consolidation (Consolidator).
// Recognition can run inline or on a bounded worker pool (Pool).
package detector
