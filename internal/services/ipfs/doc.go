// Package ipfs talks to the content-store gateway. Uploads are
// content-addressed: publishing identical bytes twice yields the same CID,
// which is what makes pipeline retries safe for this target.
package ipfs
