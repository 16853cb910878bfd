package transport

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/13879107157/wyclient/internal/analysis"
	"github.com/13879107157/wyclient/internal/resource"
	"github.com/13879107157/wyclient/model"
)

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.json("GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz_noChecks(t *testing.T) {
	h := newHarness(t)
	w := h.json("GET", "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_setsCookieAndCachesProfile(t *testing.T) {
	h := newHarness(t)

	w := h.json("POST", "/console/auth/login", map[string]string{"username": " alice ", "password": "pw"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp loginResponse
	decodeData(t, w, &resp)
	assert.Equal(t, HomeRoute, resp.Redirect)
	assert.Equal(t, "alice-profile", resp.User.Username)
	assert.NotEmpty(t, resp.SessionToken)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "wy_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, resp.SessionToken, cookie.Value)
	assert.Equal(t, 1, h.backend.count("GET", "/api/users"))
}

func TestLogin_validation(t *testing.T) {
	h := newHarness(t)

	w := h.json("POST", "/console/auth/login", map[string]string{"username": "  "}, nil)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrValidationError, env.Error.Code)
	fields := []string{}
	for _, d := range env.Error.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"username", "password"}, fields)
	assert.Zero(t, h.backend.count("POST", "/api/users/login"))
}

func TestLogin_rejectedKeepsNoSession(t *testing.T) {
	h := newHarness(t)
	h.backend.fail("POST /api/users/login", http.StatusUnauthorized)

	w := h.json("POST", "/console/auth/login", map[string]string{"username": "alice", "password": "bad"}, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Empty(t, env.Error.Redirect)
	assert.Empty(t, w.Result().Cookies())
}

func TestGate_noCookie(t *testing.T) {
	h := newHarness(t)

	w := h.json("GET", "/console/navigation", nil, nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.LoginRoute, env.Error.Redirect)
	assert.True(t, clearedCookie(w))
}

func TestGate_tamperedCookie(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()
	cookie.Value += "x"

	w := h.json("GET", "/console/navigation", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGate_bearerToken(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	req := httptest.NewRequest("GET", "/console/navigation", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	w := h.do(req, nil)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSession_probe(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	w := h.json("GET", "/console/session", nil, cookie)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp sessionResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "alice-profile", resp.User.Username)
	assert.Equal(t, 1, h.backend.count("GET", "/api/platform-types/1"))
}

func TestSession_probeRejected(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()
	h.backend.fail("GET /api/platform-types/1", http.StatusUnauthorized)

	w := h.json("GET", "/console/session", nil, cookie)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrSessionExpired, env.Error.Code)
	assert.Equal(t, model.LoginRoute, env.Error.Redirect)
	assert.True(t, clearedCookie(w))

	again := h.json("GET", "/console/navigation", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, again.Code)
}

func TestBackendForbidden_endsSessionOnAnyRoute(t *testing.T) {
	for _, tc := range []struct {
		name, method, path, backendKey string
	}{
		{"types list", "GET", "/console/platform-types", "GET /api/platform-types"},
		{"group get", "GET", "/console/platform-groups/4", "GET /api/platform-groups/4"},
		{"platform delete", "DELETE", "/console/platforms/9", "DELETE /api/platforms/9"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			cookie := h.login()
			sessionID := h.gateSessionID(cookie)
			h.registry.Workspace(sessionID)
			require.Equal(t, 1, h.registry.Len())
			h.backend.fail(tc.backendKey, http.StatusForbidden)

			w := h.json(tc.method, tc.path, nil, cookie)

			require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
			env := decode(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, model.ErrSessionExpired, env.Error.Code)
			assert.Equal(t, model.MsgSessionExpired, env.Error.Message)
			assert.Equal(t, model.LoginRoute, env.Error.Redirect)
			assert.True(t, clearedCookie(w))
			assert.Zero(t, h.registry.Len())

			_, err := h.sessions.Get(t.Context(), sessionID)
			assert.Error(t, err)
		})
	}
}

func (h *harness) gateSessionID(cookie *http.Cookie) string {
	h.t.Helper()
	id, err := h.signer.Parse(cookie.Value)
	require.NoError(h.t, err)
	return id
}

func TestGroups_deleteSplicesRow(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()
	h.backend.set("DELETE /api/platform-groups/12", nil)
	h.backend.set("GET /api/platform-groups", []map[string]any{
		{"id": 11, "name": "A", "status": 1, "order": 1},
		{"id": 12, "name": "B", "status": 1, "order": 2},
		{"id": 13, "name": "C", "status": 0, "order": 3},
	})

	w := h.json("DELETE", "/console/platform-groups/12", nil, cookie)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page resource.Page[model.PlatformGroup]
	env := decodeData(t, w, &page)
	assert.Equal(t, 1, h.backend.count("DELETE", "/api/platform-groups/12"))
	assert.Equal(t, 2, page.TotalCount)
	ids := []int64{}
	for _, g := range page.Items {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []int64{11, 13}, ids)
	require.NotEmpty(t, env.Notices)
	assert.Equal(t, resource.MsgDeleted, env.Notices[0].Message)
}

func TestGroups_createValidation(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	w := h.json("POST", "/console/platform-groups", map[string]any{"description": "x"}, cookie)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Zero(t, h.backend.count("POST", "/api/platform-groups"))
}

func TestTypes_listSearchAndPage(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()
	h.backend.set("GET /api/platform-types", []map[string]any{
		{"id": 1, "name": "社交"},
		{"id": 2, "name": "Shop"},
		{"id": 3, "name": "shopping"},
	})

	w := h.json("GET", "/console/platform-types?q=SHOP&page=1&page_size=1", nil, cookie)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page resource.Page[model.PlatformType]
	decodeData(t, w, &page)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(2), page.Items[0].ID)

	w = h.json("GET", "/console/platform-types?page=9223372036854775807&page_size=10", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &page)
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.TotalCount)
}

func TestLookups(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()
	h.backend.set("GET /api/platform-groups", []map[string]any{{"id": 11, "name": "电商", "status": 1}})

	w := h.json("GET", "/console/lookups/groups", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	h.json("GET", "/console/lookups/groups", nil, cookie)
	assert.Equal(t, 1, h.backend.count("GET", "/api/platform-groups"))

	missing := h.json("GET", "/console/lookups/colors", nil, cookie)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestNavigationAndBreadcrumbs(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	nav := h.json("GET", "/console/navigation", nil, cookie)
	require.Equal(t, http.StatusOK, nav.Code)
	var menu []model.MenuNode
	decodeData(t, nav, &menu)
	assert.NotEmpty(t, menu)

	bc := h.json("GET", "/console/breadcrumbs?path=/", nil, cookie)
	require.Equal(t, http.StatusOK, bc.Code)
	var crumbs []model.Breadcrumb
	decodeData(t, bc, &crumbs)
	require.NotEmpty(t, crumbs)
	assert.Equal(t, "Home", crumbs[0].Title)
}

func TestLogout_closesSession(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	w := h.json("POST", "/console/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, clearedCookie(w))

	after := h.json("GET", "/console/navigation", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, after.Code)
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile(UploadField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/console/analysis/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func matchResponse() map[string]any {
	return map[string]any{
		"totalRows":    3,
		"excelColumns": []string{"关键字URL", "city"},
		"platformStructure": []map[string]any{{
			"platformGroupName": "电商",
			"order":             1,
			"matchCount":        2,
			"platformGroupChildren": []map[string]any{{
				"platformName":     "淘宝",
				"platformTypeName": "购物",
				"matchCount":       2,
				"matchedData": []map[string]any{
					{"关键字URL": "taobao.com/a", "city": "北京"},
					{"关键字URL": "taobao.com/b", "city": "上海"},
				},
				"statistics": map[string]any{"city": map[string]any{"北京": 1, "上海": 1}},
			}},
		}},
	}
}

func TestAnalysis_uploadFiltersExport(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()
	h.backend.set("POST /api/excelMatching", matchResponse())

	w := h.do(multipartUpload(t, map[string]string{"dimensions": "city"}, "keywords.xlsx", []byte("xlsx")), cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap analysis.Snapshot
	decodeData(t, w, &snap)
	assert.True(t, snap.HasResult)
	assert.Equal(t, "keywords.xlsx", snap.FileName)
	assert.Equal(t, 3, snap.TotalRows)
	assert.Equal(t, []string{"电商"}, snap.GroupOptions)

	f := h.json("PUT", "/console/analysis/filters", map[string]any{"groups": []string{"电商"}}, cookie)
	require.Equal(t, http.StatusOK, f.Code, f.Body.String())
	decodeData(t, f, &snap)
	assert.Equal(t, []string{"电商"}, snap.Filters.Groups)

	x := h.json("GET", "/console/analysis/export", nil, cookie)
	require.Equal(t, http.StatusOK, x.Code, x.Body.String())
	assert.Equal(t, analysis.XLSXType, x.Header().Get("Content-Type"))
	assert.Contains(t, x.Header().Get("Content-Disposition"), analysis.ExportName)

	rows, err := analysis.ReadWorkbook(bytes.NewReader(x.Body.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	name, _ := rows[0].Get(analysis.ColGroupName)
	assert.Equal(t, "电商", name)
	keyURL, _ := rows[2].Get("关键字URL")
	assert.Equal(t, "taobao.com/a", keyURL)
}

func TestAnalysis_uploadWithoutFile(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	w := h.do(multipartUpload(t, map[string]string{"dimensions": "city"}, "", nil), cookie)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, analysis.MsgNoFile, env.Error.Message)
	assert.Zero(t, h.backend.count("POST", "/api/excelMatching"))
}

func TestAnalysis_exportBeforeUpload(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	w := h.json("GET", "/console/analysis/export", nil, cookie)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, analysis.MsgNothingToExport, env.Error.Message)
}

func TestAnalysis_statisticsEmptyIsInfo(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()
	resp := matchResponse()
	structure := resp["platformStructure"].([]map[string]any)
	delete(structure[0]["platformGroupChildren"].([]map[string]any)[0], "statistics")
	h.backend.set("POST /api/excelMatching", resp)
	require.Equal(t, http.StatusOK, h.do(multipartUpload(t, nil, "k.xlsx", []byte("x")), cookie).Code)

	w := h.json("GET", "/console/analysis/statistics?"+url.Values{"group": {"电商"}, "platform": {"淘宝"}}.Encode(), nil, cookie)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decode(t, w)
	require.NotEmpty(t, env.Notices)
	assert.Equal(t, string(model.NoticeInfo), string(env.Notices[0].Level))
}

func TestTemplates_saveListDelete(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	w := h.json("POST", "/console/templates", map[string]string{"source": "s", "infoSource": "i", "keyUrl": "k"}, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved model.InfoTemplate
	decodeData(t, w, &saved)
	assert.Equal(t, "s-i-k", saved.TemplateName)

	list := h.json("GET", "/console/templates", nil, cookie)
	var all []model.InfoTemplate
	decodeData(t, list, &all)
	require.Len(t, all, 1)

	applied := h.json("GET", "/console/templates/"+saved.ID, nil, cookie)
	require.Equal(t, http.StatusOK, applied.Code)

	del := h.json("DELETE", "/console/templates", map[string]any{"ids": []string{saved.ID}}, cookie)
	require.Equal(t, http.StatusOK, del.Code, del.Body.String())
	var left []model.InfoTemplate
	decodeData(t, del, &left)
	assert.Empty(t, left)
}

func TestTemplates_missingFields(t *testing.T) {
	h := newHarness(t)
	cookie := h.login()

	w := h.json("POST", "/console/templates", map[string]string{"source": "s"}, cookie)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	w := h.json("GET", "/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrNotFound, env.Error.Code)
}
