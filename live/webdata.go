// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"net/http"

	"github.com/gobuffalo/packr"
)

// WebdataBox holds the dashboard page and its scripts.
var WebdataBox = packr.NewBox("webdata")

// WebdataHandler serves WebdataBox below prefix.
func WebdataHandler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(WebdataBox))
}
