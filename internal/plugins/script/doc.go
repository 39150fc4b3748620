// Package script runs Lua plugins as dispatcher handlers.
//
// A script defines any of the global functions
//
//	allow_dispatch(cmd) -> nil | true | false | reason
//	before_handle(cmd)
//	handle(cmd)
//	finalize()
//
// where cmd is a table of the JSON fields of the command with its kind in
// cmd.type. Returning false or a string from allow_dispatch refuses the
// command with handler.ReasonScriptRejected.
//
// Scripts reach the model through the gridsync module:
//
//	local gs = require("gridsync")
//	gs.get("sheets", "sheet1", "cols")        -- read the state
//	gs.set("sheets", "sheet1", "title", "x")  -- write it (core plugins only)
//	gs.dispatch({type = "UPDATE_CELL", ...})  -- ok, reasons
//	gs.getter("CellContent", "sheet1", 0, 0)  -- call a plugin getter
//	gs.log("message")
//
// The io, os and debug libraries are not available and require only loads
// string, table, math and gridsync. Every call runs under a timeout.
//
// LoadDir discovers plugins on disk: single files name.lua, or directories
// holding init.lua or a plugin.json manifest.
package script
