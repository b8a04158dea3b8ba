// Package shim rewrites the generated Vite config so that imports of
// node:async_hooks resolve inside the sandbox, which has no such module.
//
// The rewrite is a plain text transform anchored on the first plugin list
// literal (`plugins: [`). Files other than vite.config.ts, and configs
// without the anchor, pass through untouched.
package shim

import (
	"path"
	"regexp"
	"strings"
)

const (
	// ConfigFile is the only file name the shim rewrites.
	ConfigFile = "vite.config.ts"

	// VirtualModule is the id both async_hooks specifiers are aliased to.
	VirtualModule = "virtual:sandpit-async-hooks"

	// PluginName is the factory prepended to the plugin list.
	PluginName = "sandpitAsyncHooks"

	marker = "// sandpit: async_hooks shim"
)

// Specifiers are the import specifiers redirected to VirtualModule.
var Specifiers = []string{"node:async_hooks", "async_hooks"}

var pluginsAnchor = regexp.MustCompile(`plugins:\s*\[`)

// Transform returns content, rewritten when name is the Vite config and the
// plugin list anchor is present. Applying it twice is the same as once.
func Transform(name, content string) string {
	if path.Base(strings.ReplaceAll(name, "\\", "/")) != ConfigFile {
		return content
	}
	if strings.Contains(content, marker) {
		return content
	}

	loc := pluginsAnchor.FindStringIndex(content)
	if loc == nil {
		return content
	}

	var b strings.Builder
	b.Grow(len(content) + len(polyfillPlugin) + 64)
	b.WriteString(content[:loc[0]])
	b.WriteString("plugins: [" + PluginName + "(), ")
	b.WriteString(content[loc[1]:])
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(polyfillPlugin)
	return b.String()
}

// Applies reports whether Transform would change content.
func Applies(name, content string) bool {
	return Transform(name, content) != content
}

var polyfillPlugin = `
` + marker + `
function ` + PluginName + `() {
  const virtualId = '` + VirtualModule + `';
  const resolvedId = '\0' + virtualId;
  return {
    name: 'sandpit-async-hooks',
    enforce: 'pre',
    config() {
      return {
        resolve: {
          alias: [
            { find: /^node:async_hooks$/, replacement: virtualId },
            { find: /^async_hooks$/, replacement: virtualId },
          ],
        },
        optimizeDeps: { exclude: ['node:async_hooks', 'async_hooks'] },
      };
    },
    resolveId(id) {
      if (id === virtualId || id === 'node:async_hooks' || id === 'async_hooks') {
        return resolvedId;
      }
    },
    load(id) {
      if (id !== resolvedId) return;
      return [
        'export class AsyncLocalStorage {',
        '  #store;',
        '  getStore() { return this.#store; }',
        '  enterWith(store) { this.#store = store; }',
        '  disable() { this.#store = undefined; }',
        '  run(store, fn, ...args) {',
        '    const prev = this.#store;',
        '    this.#store = store;',
        '    try { return fn(...args); } finally { this.#store = prev; }',
        '  }',
        '  exit(fn, ...args) { return this.run(undefined, fn, ...args); }',
        '}',
        'export class AsyncResource {',
        '  constructor(type) { this.type = type; }',
        '  runInAsyncScope(fn, thisArg, ...args) { return fn.apply(thisArg, args); }',
        '  bind(fn) { return fn.bind(this); }',
        '  static bind(fn) { return fn; }',
        '  emitDestroy() { return this; }',
        '}',
        'export function executionAsyncId() { return 0; }',
        'export function triggerAsyncId() { return 0; }',
        'export function createHook() { return { enable() { return this; }, disable() { return this; } }; }',
        'export default { AsyncLocalStorage, AsyncResource, executionAsyncId, triggerAsyncId, createHook };',
      ].join('\n');
    },
  };
}
`
