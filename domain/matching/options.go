package matching

// Options tunes the pyramid search. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	// Levels caps the number of pyramid levels, original resolution included.
	Levels int
	// MinPyramidSide stops downsampling once the needle has a side below it.
	MinPyramidSide int
	// PyramidRelax is subtracted from the required similarity on every
	// level except the full-resolution one to absorb resampling loss.
	PyramidRelax float64
	// FindAllLimit bounds the number of matcher passes in FindAllMatches.
	FindAllLimit int
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Levels:         3,
		MinPyramidSide: 20,
		PyramidRelax:   0.2,
		FindAllLimit:   100,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Levels <= 0 {
		o.Levels = d.Levels
	}
	if o.MinPyramidSide <= 0 {
		o.MinPyramidSide = d.MinPyramidSide
	}
	if o.PyramidRelax < 0 || o.PyramidRelax > 1 {
		o.PyramidRelax = d.PyramidRelax
	}
	if o.FindAllLimit <= 0 {
		o.FindAllLimit = d.FindAllLimit
	}
	return o
}
