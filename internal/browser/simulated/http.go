package simulated

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// renderScript mirrors LicenseSearchSite for real browsers: PerformSearch and
// the submit input render DemoResponder's markup into the results container
// after a delay, without navigating.
const renderScript = `
function PerformSearch() {
	var field = function (prefix) {
		var el = document.querySelector('input[name^="' + prefix + '"]');
		return el ? el.value : "";
	};
	var last = field(%q), ssn = field(%q);
	setTimeout(function () {
		var box = document.getElementById("SearchResults");
		if (!box) return;
		if (last.toLowerCase() === "sample") {
			var table = document.createElement("table");
			table.id = "grdResults";
			[["Name", "License Number", "Status"], [last, "RV-" + ssn, "Issued"]].forEach(function (cells, i) {
				var row = table.insertRow();
				cells.forEach(function (text) {
					var cell = document.createElement(i === 0 ? "th" : "td");
					cell.textContent = text;
					row.appendChild(cell);
				});
			});
			box.replaceChildren(table);
		} else {
			var msg = document.createElement("span");
			msg.className = "possemessage";
			msg.textContent = %q;
			box.replaceChildren(msg);
		}
	}, %d);
}
document.addEventListener("submit", function (ev) {
	ev.preventDefault();
	PerformSearch();
});
`

// HTTPHandler serves the license search page to a real browser. Every request
// is a new load with new field suffixes. opts.Script, if set, runs after the
// search handlers.
func HTTPHandler(opts PageOptions, delay time.Duration) http.Handler {
	script := fmt.Sprintf(renderScript, LastNamePrefix, SSNPrefix, NotFoundPhrase, delay.Milliseconds())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		page := opts
		page.Script = strings.TrimSpace(script)
		if opts.Script != "" {
			page.Script += "\n" + opts.Script
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, LicenseSearchPage(page))
	})
}
