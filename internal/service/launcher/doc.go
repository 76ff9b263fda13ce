// Package launcher sequences server startup: enter the deployment root,
// acquire the runtime environment, validate configuration, check disk space,
// then transfer control to the server entry point.
//
// The failure policy is asymmetric on purpose. Configuration validity is a
// precondition for a safe start, so that gate is fatal; disk headroom is an
// operational signal, so that gate only warns. No step retries: the launcher
// is a one-shot startup gate, not a control loop.
package launcher
