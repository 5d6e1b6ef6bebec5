package model

import "strings"

// RoleMap maps Android and iOS widget class names to compact role codes.
var RoleMap = map[string]string{
	"Button":                         "btn",
	"ImageButton":                    "btn",
	"FloatingActionButton":           "btn",
	"MaterialButton":                 "btn",
	"XCUIElementTypeButton":          "btn",
	"TextView":                       "txt",
	"XCUIElementTypeStaticText":      "txt",
	"ImageView":                      "img",
	"XCUIElementTypeImage":           "img",
	"EditText":                       "input",
	"AutoCompleteTextView":           "input",
	"TextInputEditText":              "input",
	"XCUIElementTypeTextField":       "input",
	"XCUIElementTypeSecureTextField": "input",
	"CheckBox":                       "chk",
	"CheckedTextView":                "chk",
	"Switch":                         "toggle",
	"SwitchCompat":                   "toggle",
	"ToggleButton":                   "toggle",
	"XCUIElementTypeSwitch":          "toggle",
	"RadioButton":                    "radio",
	"Spinner":                        "menu",
	"TabWidget":                      "tab",
	"TabLayout":                      "tab",
	"ListView":                       "list",
	"RecyclerView":                   "list",
	"GridView":                       "list",
	"XCUIElementTypeTable":           "list",
	"XCUIElementTypeCell":            "cell",
	"ScrollView":                     "scroll",
	"HorizontalScrollView":           "scroll",
	"NestedScrollView":               "scroll",
	"Toolbar":                        "toolbar",
	"WebView":                        "web",
	"FrameLayout":                    "group",
	"LinearLayout":                   "group",
	"RelativeLayout":                 "group",
	"ConstraintLayout":               "group",
	"ViewGroup":                      "group",
}

// MetaRoles maps meta-role names to the concrete roles they expand to.
var MetaRoles = map[string][]string{
	"interactive": {"btn", "input", "chk", "toggle", "radio", "menu", "tab"},
}

// ExpandRoles expands any meta-roles in the given list to their concrete roles.
// Non-meta roles are passed through unchanged. Duplicates are removed.
func ExpandRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	var expanded []string
	for _, r := range roles {
		if concrete, ok := MetaRoles[r]; ok {
			for _, c := range concrete {
				if !seen[c] {
					seen[c] = true
					expanded = append(expanded, c)
				}
			}
		} else if !seen[r] {
			seen[r] = true
			expanded = append(expanded, r)
		}
	}
	return expanded
}

// MapRole converts a fully qualified class name such as
// "android.widget.Button" to a compact code.
func MapRole(className string) string {
	short := className
	if i := strings.LastIndex(className, "."); i >= 0 {
		short = className[i+1:]
	}
	if code, ok := RoleMap[short]; ok {
		return code
	}
	return "other"
}
