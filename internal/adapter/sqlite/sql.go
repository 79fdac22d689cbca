package sqlite

import (
	_ "embed"
)

const (
	upsertRunSQL = `
INSERT INTO runs (run_id, processed_at, param_date, buckets)
VALUES (?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
    processed_at = excluded.processed_at,
    param_date   = excluded.param_date,
    buckets      = excluded.buckets`

	upsertBucketSQL = `
INSERT INTO buckets (start,
                     width_seconds,
                     run_id,
                     observed,
                     expected,
                     completeness,
                     unreliable_fraction,
                     t_inlet,
                     t1,
                     t2,
                     t3,
                     t_sample,
                     q_sample,
                     q_sheath,
                     p_sample,
                     fit_slope,
                     fit_intercept,
                     flags,
                     flag_code,
                     ss_slope,
                     ss_int)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (start) DO UPDATE SET
    width_seconds       = excluded.width_seconds,
    run_id              = excluded.run_id,
    observed            = excluded.observed,
    expected            = excluded.expected,
    completeness        = excluded.completeness,
    unreliable_fraction = excluded.unreliable_fraction,
    t_inlet             = excluded.t_inlet,
    t1                  = excluded.t1,
    t2                  = excluded.t2,
    t3                  = excluded.t3,
    t_sample            = excluded.t_sample,
    q_sample            = excluded.q_sample,
    q_sheath            = excluded.q_sheath,
    p_sample            = excluded.p_sample,
    fit_slope           = excluded.fit_slope,
    fit_intercept       = excluded.fit_intercept,
    flags               = excluded.flags,
    flag_code           = excluded.flag_code,
    ss_slope            = excluded.ss_slope,
    ss_int              = excluded.ss_int`

	deleteSetpointsSQL = `DELETE FROM bucket_setpoints WHERE start = ?`

	insertSetpointSQL = `
INSERT INTO bucket_setpoints (start,
                              setpoint,
                              n,
                              ss,
                              gradient,
                              t1,
                              t2,
                              samples,
                              corrected,
                              corrected_stp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectBucketsSQL = `
SELECT
    start,
    run_id,
    completeness,
    flags,
    flag_code
FROM buckets
WHERE
    start >= ? AND start < ?
ORDER BY start`

	selectSetpointsSQL = `
SELECT
    setpoint,
    n,
    samples,
    corrected_stp
FROM bucket_setpoints
WHERE
    start = ?
ORDER BY setpoint`
)

//go:embed schema.sql
var initSchemaSQL string
