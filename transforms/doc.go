// Package transforms provides caller-addable feed transforms. Transforms
// derive one event per feed event or decline it; derived events keep the
// feed event's ID so the join stage frames them correctly.
package transforms
