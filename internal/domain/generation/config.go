package generation

import "time"

// ChargePolicy selects how many credits a finished job commits.
type ChargePolicy string

const (
	// ChargeRequested charges every requested variant, produced or not.
	ChargeRequested ChargePolicy = "requested"
	// ChargeSucceeded charges only persisted outputs.
	ChargeSucceeded ChargePolicy = "succeeded"
)

// Config holds generation domain configuration.
type Config struct {
	// BatchSize is the number of provider calls in flight at once.
	BatchSize int

	// MaxVariants is the upper clamp for requested variants.
	MaxVariants int

	// MaxSourceImages is how many decoded frames are sent to the provider.
	MaxSourceImages int

	// MaxOutputBytes is the largest image accepted from the provider.
	MaxOutputBytes int64

	// CreditsPerVariant is the price of one requested variant.
	CreditsPerVariant int64

	// ChargePolicy selects the committed amount.
	ChargePolicy ChargePolicy

	// FinalizeTimeout bounds status and billing writes after the run.
	FinalizeTimeout time.Duration
}

// DefaultConfig returns default generation configuration. Batch size, variant
// clamp, source images and output size are also ceilings.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:         3,
		MaxVariants:       8,
		MaxSourceImages:   3,
		MaxOutputBytes:    25 << 20,
		CreditsPerVariant: 1,
		ChargePolicy:      ChargeRequested,
		FinalizeTimeout:   15 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	out := *c
	if out.BatchSize < 1 || out.BatchSize > def.BatchSize {
		out.BatchSize = def.BatchSize
	}
	if out.MaxVariants < 1 || out.MaxVariants > def.MaxVariants {
		out.MaxVariants = def.MaxVariants
	}
	if out.MaxSourceImages < 1 || out.MaxSourceImages > def.MaxSourceImages {
		out.MaxSourceImages = def.MaxSourceImages
	}
	if out.MaxOutputBytes <= 0 || out.MaxOutputBytes > def.MaxOutputBytes {
		out.MaxOutputBytes = def.MaxOutputBytes
	}
	if out.CreditsPerVariant <= 0 {
		out.CreditsPerVariant = def.CreditsPerVariant
	}
	if out.ChargePolicy != ChargeSucceeded {
		out.ChargePolicy = ChargeRequested
	}
	if out.FinalizeTimeout <= 0 {
		out.FinalizeTimeout = def.FinalizeTimeout
	}
	return &out
}
