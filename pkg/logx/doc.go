// Package logx configures pricebot's structured logging.
//
// A thin wrapper (logx.Logger) over zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional operator alert sink (min-level + rate limiting)
package logx
