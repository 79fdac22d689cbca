// Package domain models cloud condensation nuclei (CCN) counter data and the
// transforms that turn per-minute instrument records into hourly products.
//
// # Data Source
//
// Records come from a CCN-100 style counter logging once per minute. The
// instrument cycles through a small table of supersaturation setpoints
// (typically 0.1, 0.15, 0.25, 0.4 and 0.7 %), holding each for several
// minutes. Each record carries the reported setpoint, the particle number
// concentration and the temperatures of the thermoelectric coolers (TECs)
// that establish the column temperature gradient.
//
// # Supersaturation
//
// The effective supersaturation is recovered from the TEC1/TEC2 gradient using
// the linear calibration stored in the instrument ini file:
//
//	gradient = 2 * (T2 - T1)
//	ss       = (gradient - intercept) / slope
//
// A sample is unreliable when the computed value deviates from the reported
// setpoint by more than 20 % of their mean.
//
// # Averaging
//
// Samples are grouped into left-closed windows aligned to the averaging width
// (one hour by default) and, within a window, by reported setpoint. Each
// setpoint contributes a family of means ([SetpointStats]). Windows with no
// samples are not emitted.
//
// # Correction
//
// Per window, an ordinary least-squares line is fitted through the
// (computed ss, mean count) pairs of all setpoints and evaluated at the
// nominal setpoints. Fitted counts are floored at zero and then normalised to
// standard temperature and pressure (273.15 K, 1013.25 hPa).
//
// # Missing values
//
// NaN means "insufficient data". Any arithmetic with a NaN operand yields NaN
// and any comparison with NaN is false; see [Valid].
//
// # Flags
//
// Seven independent QC flags are packed MSB-first into one integer code:
//
//	setpoint | completeness | flow | concentration | T1 ceiling | T1 > inlet | T1 stability
//
// so flags 1010000 encode as 80.
package domain
