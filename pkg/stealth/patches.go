package stealth

import (
	"encoding/json"
	"fmt"
)

// Patch is a named script installed on every new document.
type Patch struct {
	Name   string
	Script string
}

// DefaultUserAgents is the pool RandomUserAgent draws from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// DefaultLanguages is reported by navigator.languages when no languages are
// configured.
var DefaultLanguages = []string{"en-US", "en"}

const jsHideWebdriver = `Object.defineProperty(navigator, 'webdriver', {
	get: () => undefined
});`

const jsPermissions = `(() => {
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
})();`

const jsPlugins = `Object.defineProperty(navigator, 'plugins', {
	get: () => [
		{
			0: {type: "application/x-google-chrome-pdf", suffixes: "pdf", description: "Portable Document Format", enabledPlugin: Plugin},
			description: "Portable Document Format",
			filename: "internal-pdf-viewer",
			length: 1,
			name: "Chrome PDF Plugin"
		},
		{
			0: {type: "application/pdf", suffixes: "pdf", description: "", enabledPlugin: Plugin},
			description: "",
			filename: "mhjfbmdgcfjbbpaeojofohoefgiehjai",
			length: 1,
			name: "Chrome PDF Viewer"
		},
		{
			0: {type: "application/x-nacl", suffixes: "", description: "Native Client Executable", enabledPlugin: Plugin},
			1: {type: "application/x-pnacl", suffixes: "", description: "Portable Native Client Executable", enabledPlugin: Plugin},
			description: "",
			filename: "internal-nacl-plugin",
			length: 2,
			name: "Native Client"
		}
	],
});`

const jsCanvas = `(() => {
	const getImageData = CanvasRenderingContext2D.prototype.getImageData;
	CanvasRenderingContext2D.prototype.getImageData = function() {
		const imageData = getImageData.apply(this, arguments);
		for (let i = 0; i < imageData.data.length; i += 4) {
			imageData.data[i] = imageData.data[i] ^ Math.floor(Math.random() * 10);
		}
		return imageData;
	};
})();`

// 37445 and 37446 are UNMASKED_VENDOR_WEBGL and UNMASKED_RENDERER_WEBGL.
const jsWebGL = `(() => {
	const getParameter = WebGLRenderingContext.prototype.getParameter;
	WebGLRenderingContext.prototype.getParameter = function(parameter) {
		if (parameter === 37445) {
			return 'Intel Inc.';
		}
		if (parameter === 37446) {
			return 'Intel Iris OpenGL Engine';
		}
		return getParameter.apply(this, arguments);
	};
})();`

const jsAudio = `(() => {
	const getChannelData = AudioBuffer.prototype.getChannelData;
	AudioBuffer.prototype.getChannelData = function() {
		const data = getChannelData.apply(this, arguments);
		for (let i = 0; i < data.length; i += 100) {
			data[i] = data[i] + (Math.random() - 0.5) * 1e-7;
		}
		return data;
	};
})();`

func languagesScript(languages []string) string {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	encoded, err := json.Marshal(languages)
	if err != nil {
		encoded = []byte(`["en-US","en"]`)
	}
	return fmt.Sprintf(`Object.defineProperty(navigator, 'languages', {
	get: () => %s
});`, encoded)
}

// fingerprintScript reports what a page can observe about the browser.
const fingerprintScript = `() => {
	let vendor = '';
	let renderer = '';
	try {
		const gl = document.createElement('canvas').getContext('webgl');
		if (gl) {
			vendor = gl.getParameter(37445) || '';
			renderer = gl.getParameter(37446) || '';
		}
	} catch (e) {}
	return {
		webdriver: navigator.webdriver === true,
		userAgent: navigator.userAgent,
		languages: Array.from(navigator.languages || []),
		plugins: navigator.plugins ? navigator.plugins.length : 0,
		webglVendor: String(vendor),
		webglRenderer: String(renderer),
	};
}`
