// Package secrets redacts credentials from source text before it leaves the
// process.
//
// The indexer scrubs every chunk before it is embedded and stored, so a key
// committed to an indexed repository is never sent to the embedding service,
// persisted in the vector store, or quoted back by the generator. Findings
// record rule ids and positions but never the matched text.
//
// The regex rules run first. The gitleaks default rule set can be layered on
// top through Config.Gitleaks.
package secrets
