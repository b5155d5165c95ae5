package session

// fakeBackend is a hand-rolled stand-in for the wrapped USB library, used so
// dispatch tests never touch real hardware.
type fakeBackend struct {
	buses        []BusInfo
	closedCount  int
	lastBulkData []byte
}

func (f *fakeBackend) Init() error           { return nil }
func (f *fakeBackend) FindBusses() (int, error) { return len(f.buses), nil }
func (f *fakeBackend) FindDevices() ([]BusInfo, error) { return f.buses, nil }

func (f *fakeBackend) Open(busLoc, devnum uint32) (int32, NativeHandle, error) {
	return 0, "fake-device", nil
}
func (f *fakeBackend) CloseDevice(dev NativeHandle) int32 {
	f.closedCount++
	return 0
}
func (f *fakeBackend) ControlMsg(dev NativeHandle, reqtype, request, value, index int32, buf []byte, timeout int32) (int32, []byte) {
	return int32(len(buf)), buf
}
func (f *fakeBackend) ClaimInterface(dev NativeHandle, ifnum int32) int32    { return 0 }
func (f *fakeBackend) ReleaseInterface(dev NativeHandle, ifnum int32) int32 { return 0 }
func (f *fakeBackend) GetKernelDriver(dev NativeHandle, ifnum int32, buflen uint32) (int32, string) {
	return -1, ""
}
func (f *fakeBackend) DetachKernelDriver(dev NativeHandle, ifnum int32) int32 { return 0 }
func (f *fakeBackend) BulkRead(dev NativeHandle, ep, size, timeout int32) (int32, []byte) {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return int32(len(data)), data
}
func (f *fakeBackend) BulkWrite(dev NativeHandle, ep int32, data []byte, timeout int32) int32 {
	f.lastBulkData = data
	return int32(len(data))
}
func (f *fakeBackend) SetConfiguration(dev NativeHandle, cfg int32) (int32, int32) { return 0, cfg }
func (f *fakeBackend) SetAltInterface(dev NativeHandle, alt int32) (int32, int32)  { return 0, alt }
func (f *fakeBackend) ResetEp(dev NativeHandle, ep uint32) int32                   { return 0 }
func (f *fakeBackend) ClearHalt(dev NativeHandle, ep uint32) int32                 { return 0 }
func (f *fakeBackend) Reset(dev NativeHandle) int32                                { return 0 }
func (f *fakeBackend) InterruptRead(dev NativeHandle, ep, size, timeout int32) (int32, []byte) {
	return f.BulkRead(dev, ep, size, timeout)
}
func (f *fakeBackend) InterruptWrite(dev NativeHandle, ep int32, data []byte, timeout int32) int32 {
	return f.BulkWrite(dev, ep, data, timeout)
}

var _ Backend = (*fakeBackend)(nil)
