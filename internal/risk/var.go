package risk

import "math"

// minVaRSamples is the shortest return series the estimator will use.
// Below it the gate falls back to a conservative fixed loss fraction.
const minVaRSamples = 10

// fallbackVaRFraction is the assumed tail-loss fraction when the realized
// return history is too thin to estimate one.
const fallbackVaRFraction = 0.15

// modifiedVaR estimates the loss fraction at the given confidence level
// using a Cornish-Fisher adjustment of the normal quantile for the skew
// and excess kurtosis of the return series. The result is a positive loss
// magnitude, floored at zero.
func modifiedVaR(returns []float64, confidence float64) float64 {
	n := len(returns)
	if n < minVaRSamples {
		return fallbackVaRFraction
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	m2, m3, m4 := 0.0, 0.0, 0.0
	for _, r := range returns {
		d := r - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= float64(n)
	m3 /= float64(n)
	m4 /= float64(n)

	sigma := math.Sqrt(m2)
	if sigma == 0 {
		return 0
	}
	skew := m3 / math.Pow(sigma, 3)
	exKurt := m4/math.Pow(sigma, 4) - 3

	z := normalQuantile(1 - confidence) // lower tail, negative
	zcf := z +
		(z*z-1)*skew/6 +
		(z*z*z-3*z)*exKurt/24 -
		(2*z*z*z-5*z)*skew*skew/36

	loss := -(mean + zcf*sigma)
	if loss < 0 {
		return 0
	}
	return loss
}

// worstVaR returns the largest loss fraction across the configured
// confidence levels, keyed results included for observability.
func worstVaR(returns []float64, confidences []float64) (float64, map[float64]float64) {
	byConf := make(map[float64]float64, len(confidences))
	worst := 0.0
	for _, c := range confidences {
		v := modifiedVaR(returns, c)
		byConf[c] = v
		if v > worst {
			worst = v
		}
	}
	return worst, byConf
}

// normalQuantile computes the inverse standard normal CDF using the
// Acklam rational approximation, accurate to roughly 1e-9 over (0,1).
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [...]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [...]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [...]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [...]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
