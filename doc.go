// Package tablebridge hands in-memory tables from Go to a function defined in
// Python source that is compiled into the host binary.
//
// The interpreter runs as a child process driving a small host script over a
// pair of dedicated pipes. Frames are length-prefixed; the first is a JSON
// handshake naming the codec for the rest of the session (msgpack when the
// interpreter can import it, JSON otherwise). Python values stay in the child
// and are referred to by Object handles.
//
// # Invocation
//
// A Bridge performs one fixed sequence per Invoke, holding the Session lock
// throughout:
//
//  1. insert the platform package directory (VenvPackagesDir) at sys.path[0]
//  2. load the embedded module
//  3. resolve the target function (line_graph by default)
//  4. call it with the table and two column names
//
// The first failing step ends the sequence. The returned Result carries either
// the call's return value or an *Error tagged with the Phase that failed:
//
//	table, err := tablebridge.NewTable(
//	    tablebridge.Strings("Date", "2024-10-01", "2024-10-02", "2024-10-03"),
//	    tablebridge.Int64s("Value", 1, 2, 4),
//	)
//	module := tablebridge.NewModuleFromString("hello", "hello.py", helloSource)
//	res := tablebridge.NewBridge(nil, module).Invoke(ctx, table, "Date", "Value")
//	fmt.Println(res) // Ok(PosixPath('/tmp/chart.html'))
//
// # Sessions
//
// DefaultSession is the process-wide session. Its interpreter is discovered
// and started on first use, exactly once; SetDefaultFactory replaces how that
// happens and must be called before first use. Sessions built with NewSession
// take any InterpreterFactory, which is how tests substitute a fake.
//
// # Environments
//
// DiscoverEnvironment picks an interpreter from Config: an explicit path, the
// project virtual environment, a uv-managed Python matching .python-version,
// or the system Python. PipInstallPackages can populate the package
// directory.
//
// # Platform Support
//
// The package directory is fixed per platform:
//   - Linux: .venv/lib/python3.12/site-packages/
//   - Windows: .venv\Lib\site-packages
//
// Other platforms are not supported and the package does not build there.
package tablebridge
