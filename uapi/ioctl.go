// SPDX-FileCopyrightText: 2020 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package uapi

// ioctl constants defined in ioctl_XXX

func ior(t, nr, size uintptr) Cmd {
	return Cmd((iocRead << iocDirShift) |
		(size << iocSizeShift) |
		(t << iocTypeShift) |
		(nr << iocNRShift))
}

func iow(t, nr, size uintptr) Cmd {
	return Cmd((iocWrite << iocDirShift) |
		(size << iocSizeShift) |
		(t << iocTypeShift) |
		(nr << iocNRShift))
}

// IOR returns the command code for a driver to user transfer of size bytes.
//
// Provided for building requests outside the spidev vocabulary, such as in
// tests of the dispatcher.
func IOR(t, nr uint8, size int) Cmd {
	return ior(uintptr(t), uintptr(nr), uintptr(size))
}

// IOW returns the command code for a user to driver transfer of size bytes.
func IOW(t, nr uint8, size int) Cmd {
	return iow(uintptr(t), uintptr(nr), uintptr(size))
}
