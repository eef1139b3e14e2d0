package devicelist

// View is the display-ready list of devices.
type View struct {
	// Wireless holds all wireless devices in order.
	Wireless []Record `json:"wireless"`
	// Wired holds all wired devices in order.
	Wired []Record `json:"wired"`
	// ShowWiredSection describes whether a section for wired devices should be
	// displayed, even if empty.
	ShowWiredSection bool `json:"show_wired_section"`
}

// BuildView merges live and known devices and partitions them.
func BuildView(live []Record, known []KnownDevice, config Config) View {
	wireless, wired := Partition(Merge(live, known, config))
	return View{
		Wireless:         wireless,
		Wired:            wired,
		ShowWiredSection: config.AlwaysShowWiredSection || len(wired) > 0,
	}
}

// Lookup searches the View for a record with the given id.
func (v View) Lookup(id string) (Record, bool) {
	if i := indexOf(v.Wireless, id); i >= 0 {
		return v.Wireless[i], true
	}
	if i := indexOf(v.Wired, id); i >= 0 {
		return v.Wired[i], true
	}
	return Record{}, false
}

// Len returns the total number of records.
func (v View) Len() int {
	return len(v.Wireless) + len(v.Wired)
}
