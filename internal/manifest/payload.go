package manifest

import (
	"updateengine/internal/failure"
)

// Mode is an installation mode.
type Mode string

const (
	ModeBootSystem Mode = "boot_system"
	ModeDelta      Mode = "delta"
	ModeAnki       Mode = "anki"
)

// Payload is the installation work a manifest describes. It is one of
// BootSystem, Delta or Anki.
type Payload interface {
	Mode() Mode
	// Images lists the sections in the order their archive entries follow.
	Images() []Image
	// ExpectedSize is the value published as expected-size.
	ExpectedSize() int64
}

// BootSystem replaces both the boot and system images.
type BootSystem struct {
	Boot   Image
	System Image
	order  []Image
}

func (p BootSystem) Mode() Mode          { return ModeBootSystem }
func (p BootSystem) Images() []Image     { return append([]Image(nil), p.order...) }
func (p BootSystem) ExpectedSize() int64 { return p.Boot.Bytes + p.System.Bytes }

// Delta patches the current slot into the target slot.
type Delta struct {
	Image Image
}

func (p Delta) Mode() Mode          { return ModeDelta }
func (p Delta) Images() []Image     { return []Image{p.Image} }
func (p Delta) ExpectedSize() int64 { return p.Image.Bytes }

// AnkiStages is the number of coarse progress steps of an anki-only update.
const AnkiStages = 4

// Anki replaces only the product subtree of the system image.
type Anki struct {
	Image Image
}

func (p Anki) Mode() Mode          { return ModeAnki }
func (p Anki) Images() []Image     { return []Image{p.Image} }
func (p Anki) ExpectedSize() int64 { return AnkiStages }

// Payload selects the installation mode from the declared sections: BOOT and
// SYSTEM together, a single DELTA, or a single ANKI. Anything else is
// rejected before any device is written.
func (m *Manifest) Payload() (Payload, error) {
	meta, err := m.Meta()
	if err != nil {
		return nil, err
	}
	images, err := m.Images()
	if err != nil {
		return nil, err
	}
	if meta.NumImages != len(images) {
		return nil, failure.Newf(failure.CodeManifest, "select mode",
			"num_images is %d but manifest declares %d image sections", meta.NumImages, len(images))
	}

	switch meta.NumImages {
	case 2:
		p := BootSystem{order: images}
		var haveBoot, haveSystem bool
		for _, img := range images {
			switch img.Section {
			case SectionBoot:
				p.Boot, haveBoot = img, true
			case SectionSystem:
				p.System, haveSystem = img, true
			}
		}
		if !haveBoot || !haveSystem {
			return nil, failure.New(failure.CodeManifest, "select mode", "Two images specified but couldn't find boot or system")
		}
		return p, nil
	case 1:
		switch images[0].Section {
		case SectionDelta:
			return Delta{Image: images[0]}, nil
		case SectionAnki:
			return Anki{Image: images[0]}, nil
		}
		return nil, failure.New(failure.CodeManifest, "select mode", "One image specified but not DELTA or ANKI")
	default:
		return nil, failure.New(failure.CodeManifest, "select mode", "Unexpected manifest configuration")
	}
}
