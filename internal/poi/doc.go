// Package poi aggregates venue records from map search APIs.
//
// Each Source queries one platform's place search endpoint through the
// compliance gate. The Aggregator queries all sources concurrently, merges
// the results in source order, drops venues already seen under the same
// name and address, and numbers the survivors from 1.
package poi
