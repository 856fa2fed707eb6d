// Package core contains the command dispatcher, the request telemetry ledger
// and the result delivery primitives. Adapters and stores depend on this
// package; core must not depend on transport or storage adapters.
package core
