// Package healthcheck probes a deployed server's endpoints and reports
// per-endpoint state, exiting non-zero when anything is down. Meant to be
// run frequently from cron or by hand after a deploy.
package healthcheck
