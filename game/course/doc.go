// Package course describes the places a car can be driven.
//
// A course Config bundles the vehicle tuning, the spawn pose and a list of
// TerrainSpec entries. Build turns the specs into engine.Collidable values:
// planes, boxes, triangle meshes, heightfields and procedural wave terrain.
// All geometry answers the downward ground query used by the engine; planes,
// boxes and meshes also answer arbitrary rays.
package course
