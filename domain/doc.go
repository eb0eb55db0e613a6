// Package domain provides the data model shared by the release engine:
// artifacts and their build specifications, store revisions, upstream refs,
// build outputs and pipeline states.
//
// The types here are plain data carrying json and yaml tags for the run
// record and the artifact list. Behavior lives in the consuming packages:
// ordering in version, decisions in reconcile, execution in pipeline.
//
// # Artifact kinds
//
// Every Artifact has an ArtifactKind that selects its build strategy:
//
//   - KindCharm: a charm built with charmcraft or the reactive charm tool
//   - KindBundle: a bundle of charms packed from bundle.yaml
//   - KindSnap: a snap built with snapcraft
//   - KindDeb: a source package uploaded to a Launchpad PPA
//
// # Pipeline states
//
// A pipeline moves through
//
//	Pending -> Cloned -> Built -> Pushed -> ResourcesAttached -> Released -> Done
//
// with Failed reachable from every non-terminal state.
package domain
