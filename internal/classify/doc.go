// Package classify decides which archive folder a staged file belongs in.
//
// Resolution order: first category in the map claiming the extension wins;
// Code matches get a secondary content-based pass that can nest them under
// Code_Projects; unmapped extensions escalate to the oracle exactly once,
// recording the learned binding back into the map; anything the oracle cannot
// place lands in Unsorted_Agent_Failed. Every path degrades to a usable
// folder, so a run never stalls on a single stubborn file.
package classify
