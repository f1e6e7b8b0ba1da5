// Package merge combines independently resolved sources into one stream,
// unifying entities that appear in more than one source under different
// raw ids.
//
// Sources are consumed one after the other in priority order. The first
// entity seen under an identity key wins; later duplicates are dropped and
// their ids are remapped to the winner's so that records arriving later
// from the same source point at the canonical identity before their own key
// is computed. Entities emitted before a duplicate was discovered are never
// rewritten.
package merge
