// Package lazyload materializes expensive resources on demand.
//
// A Resource starts Absent. The first RequestContent call schedules one
// LoadTask on the worker pool shared by its tag and moves to Loading; the
// task runs the caller's Producer off the render path and moves the
// resource to Ready or Error. Every transition is reported through the
// OnChange hook, delivered by a Dispatcher.
//
// State machine
//
//	Absent  --RequestContent-->  Loading
//	Loading --success-------->   Ready
//	Loading --failure/reject->   Error
//	Error   --Retry---------->   Absent
//	any     --Unload--------->   Absent
//
// At most one LoadTask is queued or running per resource. Every Unload
// bumps a generation counter; completions carrying an older generation are
// discarded and their content released.
//
// Tiered resources
//
// A Tiered resource keeps a base Resource for a cheap preview and runs a
// second, independent machine for the full version. A failed promotion
// never touches the preview.
//
// Eviction
//
// Resources touch an eviction.Pool when they become visible. The pool
// only holds weak handles; on eviction it asks the resource to Unload.
package lazyload
