package webapi

import (
	"github.com/cryguy/mqjs/internal/core"
)

// writeFuncName is the Go-backed primitive the console polyfill captures
// and then removes from globalThis.
const writeFuncName = "__mqjs_write"

// consoleJS builds console and print on top of the write primitive. Each
// call stringifies its arguments, joins them with single spaces and writes
// one newline-terminated line. Arguments that cannot be stringified are
// skipped.
const consoleJS = `
(function() {
	var write = globalThis.__mqjs_write;
	delete globalThis.__mqjs_write;
	function format(args) {
		var parts = [];
		for (var i = 0; i < args.length; i++) {
			try {
				parts.push(String(args[i]));
			} catch (e) {}
		}
		return parts.join(' ') + '\n';
	}
	function log() {
		write(format(arguments));
	}
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		con[levels[i]] = log;
	}
	globalThis.console = con;
	globalThis.print = log;
})();
`

// SetupConsole replaces globalThis.console and globalThis.print with
// versions that append to sink.
func SetupConsole(rt core.JSRuntime, sink core.OutputSink) error {
	if err := rt.RegisterFunc(writeFuncName, func(s string) {
		sink.Write([]byte(s))
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}

// consoleExtJS adds timing, counting, assertion, inspection and grouping
// methods on top of the base console. Inside a group every console line is
// indented by two spaces per level; print is left as is.
const consoleExtJS = `
(function() {
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var base = {};
	var indent = '';
	var timers = Object.create(null);
	var counters = Object.create(null);

	function line(args) {
		var parts = [];
		for (var i = 0; i < args.length; i++) {
			try {
				parts.push(String(args[i]));
			} catch (e) {}
		}
		return parts.join(' ');
	}
	function emit(level, text) {
		if (indent) text = indent + text.split('\n').join('\n' + indent);
		base[level](text);
	}
	levels.forEach(function(level) {
		base[level] = console[level];
		console[level] = function() {
			if (!indent) return base[level].apply(null, arguments);
			emit(level, line(arguments));
		};
	});

	function key(label) {
		return label === undefined ? 'default' : String(label);
	}
	function elapsed(label, rest) {
		var k = key(label);
		if (!(k in timers)) {
			emit('warn', 'Timer "' + k + '" does not exist');
			return;
		}
		var msg = k + ': ' + (Date.now() - timers[k]) + 'ms';
		if (rest.length > 0) msg += ' ' + line(rest);
		emit('log', msg);
		return k;
	}

	console.time = function(label) {
		timers[key(label)] = Date.now();
	};
	console.timeLog = function(label) {
		elapsed(label, Array.prototype.slice.call(arguments, 1));
	};
	console.timeEnd = function(label) {
		var k = elapsed(label, []);
		if (k !== undefined) delete timers[k];
	};
	console.count = function(label) {
		var k = key(label);
		counters[k] = (counters[k] || 0) + 1;
		emit('log', k + ': ' + counters[k]);
	};
	console.countReset = function(label) {
		delete counters[key(label)];
	};
	console.assert = function(cond) {
		if (cond) return;
		var rest = Array.prototype.slice.call(arguments, 1);
		emit('error', rest.length > 0 ? 'Assertion failed: ' + line(rest) : 'Assertion failed');
	};
	console.trace = function() {
		emit('log', arguments.length > 0 ? 'Trace: ' + line(arguments) : 'Trace');
	};
	console.dir = console.table = function(data) {
		var text;
		try {
			text = JSON.stringify(data, null, 2);
		} catch (e) {}
		emit('log', text === undefined ? line([data]) : text);
	};
	console.group = console.groupCollapsed = function() {
		if (arguments.length > 0) emit('log', line(arguments));
		indent += '  ';
	};
	console.groupEnd = function() {
		indent = indent.slice(2);
	};
})();
`

// SetupConsoleExt evaluates the extended console methods polyfill.
func SetupConsoleExt(rt core.JSRuntime, _ core.OutputSink) error {
	return rt.Eval(consoleExtJS)
}
