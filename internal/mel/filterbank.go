package mel

import "math"

// buildMelFilterbank constructs an nMels x (nFFT/2+1) triangular filterbank
// on the Slaney mel scale, the convention Whisper's reference mel
// computation uses.
func buildMelFilterbank(sampleRate, nFFT, nMels int) [][]float64 {
	nBins := nFFT/2 + 1
	fMin, fMax := 0.0, float64(sampleRate)/2

	melMin := hzToMel(fMin)
	melMax := hzToMel(fMax)

	points := make([]float64, nMels+2)
	for i := range points {
		m := melMin + (melMax-melMin)*float64(i)/float64(nMels+1)
		points[i] = melToHz(m)
	}

	binFreqs := make([]float64, nBins)
	for i := range binFreqs {
		binFreqs[i] = float64(i) * float64(sampleRate) / float64(nFFT)
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lo, center, hi := points[m], points[m+1], points[m+2]
		row := make([]float64, nBins)
		for b, f := range binFreqs {
			var w float64
			switch {
			case f < lo || f > hi:
				w = 0
			case f <= center:
				if center != lo {
					w = (f - lo) / (center - lo)
				}
			default:
				if hi != center {
					w = (hi - f) / (hi - center)
				}
			}
			row[b] = w
		}
		// Slaney-style area normalization: each filter integrates to 1.
		enorm := 2.0 / (hi - lo)
		for b := range row {
			row[b] *= enorm
		}
		filters[m] = row
	}
	return filters
}

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	slaneyHzPerMel  = 200.0 / 3
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyHzPerMel
	slaneyLogStep   = 0.06875177742094912 // ln(6.4) / 27
)

func hzToMel(f float64) float64 {
	if f < slaneyMinLogHz {
		return f / slaneyHzPerMel
	}
	return slaneyMinLogMel + math.Log(f/slaneyMinLogHz)/slaneyLogStep
}

func melToHz(m float64) float64 {
	if m < slaneyMinLogMel {
		return m * slaneyHzPerMel
	}
	return slaneyMinLogHz * math.Exp(slaneyLogStep*(m-slaneyMinLogMel))
}
