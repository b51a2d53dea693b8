package harness

const passBanner = `  _____           _____  _____
 |  __ \  /\     / ____|/ ____|
 | |__) |/  \   | (___ | (___
 |  ___// /\ \   \___ \ \___ \
 | |   / ____ \  ____) |____) |
 |_|  /_/    \_\|_____/|_____/
`

const failBanner = `  ______        _____  _
 |  ____|/\    |_   _|| |
 | |__  /  \     | |  | |
 |  __|/ /\ \    | |  | |
 | |  / ____ \  _| |_ | |____
 |_| /_/    \_\|_____||______|
`
