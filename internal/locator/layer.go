package locator

// LayerID names one cached hop of a bootstrap chain.
type LayerID int

const (
	LayerBootstrap LayerID = iota
	LayerSession
	LayerDomain
	LayerDomainLite
	LayerScreenLite

	layerCount
)

func (l LayerID) String() string {
	switch l {
	case LayerBootstrap:
		return "bootstrap"
	case LayerSession:
		return "session"
	case LayerDomain:
		return "domain"
	case LayerDomainLite:
		return "domain_lite"
	case LayerScreenLite:
		return "screen_lite"
	default:
		return "unknown"
	}
}

func (l LayerID) valid() bool {
	return l >= 0 && l < layerCount
}

// Variant selects the layers a locator resolves.
type Variant int

const (
	// VariantFull resolves bootstrap -> session -> domain.
	VariantFull Variant = iota
	// VariantLite resolves bootstrap -> session -> domain-lite and
	// bootstrap -> screen-lite.
	VariantLite
)

func (v Variant) String() string {
	if v == VariantLite {
		return "lite"
	}
	return "full"
}

// Lite reports whether v is the lite variant.
func (v Variant) Lite() bool { return v == VariantLite }

// Primary is the domain layer a recovery or user switch eagerly re-resolves.
func (v Variant) Primary() LayerID {
	if v == VariantLite {
		return LayerDomainLite
	}
	return LayerDomain
}
