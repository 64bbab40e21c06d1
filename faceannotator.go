// Package faceannotator manages face-identity annotations stored as JSON
// sidecar files next to the images they describe.
//
// An EditorSession walks a directory of images in natural filename order.
// Exactly one image is current at a time; its annotation record is loaded (or
// created with default metadata) when the session moves to it, edited through
// the session's box operations, and written back by Save.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		faceannotator "github.com/menta2k/face-annotator"
//		"github.com/menta2k/face-annotator/internal/config"
//	)
//
//	func main() {
//		session := faceannotator.New(config.Default())
//		if err := session.Open("./dataset"); err != nil {
//			log.Fatal(err)
//		}
//
//		// Add a face box and name it
//		session.AddBox()
//		if err := session.RelabelSelected("홍길동"); err != nil {
//			log.Fatal(err)
//		}
//
//		// Moving on saves the edited record first
//		if err := session.Next(); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package is built from these components:
//
// 1. Geometry (pkg/geometry): pixel boxes and normalized coordinates
// 2. Annotation (pkg/annotation): sidecar load, edit, save and migration
// 3. Processing (pkg/processing): overlays and face crops
// 4. Detection (pkg/detection): optional face suggestions from a vision model
//
// Sidecars keep every key they were loaded with. Saving copies the previous
// file to a backup next to it before the new content replaces it.
package faceannotator

// Version of the face annotator library
const Version = "1.0.0"

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
