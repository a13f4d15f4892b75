// Package periphery exposes the workbench peripherals (camera, label
// printer, RFID/barcode scanners) behind capability interfaces. The
// supervisor depends on the interfaces only; the single production
// implementation talks to the peripheral gateway over HTTP and a udev
// monitor tracks scanner presence.
package periphery
