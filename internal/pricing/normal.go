package pricing

import "github.com/montanaflynn/stats"

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return stats.NormCdf(x, 0, 1)
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return stats.NormPdf(x, 0, 1)
}
