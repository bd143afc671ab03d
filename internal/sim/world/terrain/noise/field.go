package noise

// Field is a scaled multi-octave sampler over world coordinates.
type Field struct {
	Src         Source
	Scale       float64
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

func NewField(src Source, scale float64, octaves int, persistence, lacunarity float64) Field {
	if octaves <= 0 {
		octaves = 1
	}
	return Field{Src: src, Scale: scale, Octaves: octaves, Persistence: persistence, Lacunarity: lacunarity}
}

// At samples the field at world coordinates, in [-1,1].
func (f Field) At(wx, wy float64) float64 {
	if f.Src == nil {
		return 0
	}
	if f.Octaves <= 1 {
		return f.Src.Eval2(wx*f.Scale, wy*f.Scale)
	}
	return Octave(f.Src, wx*f.Scale, wy*f.Scale, f.Octaves, f.Persistence, f.Lacunarity)
}

// At01 samples the field mapped to [0,1].
func (f Field) At01(wx, wy float64) float64 {
	return Normalize(f.At(wx, wy))
}
